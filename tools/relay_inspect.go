package main

import (
	"chat-relay/repositories"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

const (
	messagePrefix = "msg:"
	userPrefix    = "user:"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", messagePrefix, "Prefix to scan (msg: or user:)")
	since := flag.Uint64("since", 0, "Only messages with an id greater than this")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	var row func(key string, value []byte) ([]string, error)
	switch *prefix {
	case messagePrefix:
		table.SetHeader([]string{"ID", "Created", "Author", "Content"})
		row = func(_ string, value []byte) ([]string, error) {
			msg, err := repositories.DecodeMessage(value)
			if err != nil {
				return nil, err
			}
			if uint64(msg.ID) <= *since {
				return nil, nil
			}
			return []string{
				strconv.FormatUint(uint64(msg.ID), 10),
				msg.CreatedAt.Format("2006-01-02 15:04:05"),
				msg.Author,
				truncate(msg.Content, 60),
			}, nil
		}
	case userPrefix:
		table.SetHeader([]string{"Username", "ID", "Roles", "Created"})
		row = func(_ string, value []byte) ([]string, error) {
			user, err := repositories.DecodeUser(value)
			if err != nil {
				return nil, err
			}
			return []string{
				user.Username,
				truncate(user.ID, 8),
				strings.Join(user.Roles, ","),
				user.CreatedAt.Format("2006-01-02 15:04:05"),
			}, nil
		}
	default:
		table.SetHeader([]string{"Key", "Size"})
		row = func(key string, value []byte) ([]string, error) {
			return []string{key, strconv.Itoa(len(value)) + " bytes"}, nil
		}
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				cells, err := row(string(item.Key()), v)
				if err != nil {
					// Keep scanning, one bad record should not hide the others
					fmt.Printf("Error decoding key %s: %v\n", string(item.Key()), err)
					return nil
				}
				if cells != nil {
					table.Append(cells)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A crashed relay leaves a log to truncate, which needs a write open first
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
