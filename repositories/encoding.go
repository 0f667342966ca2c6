package repositories

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in protobuf wire format so that any protobuf tooling can
// read a dump of the database.
//
//	message Message { uint64 id = 1; int64 created_at = 2; string author = 3; string content = 4; }
//	message User    { string id = 1; string username = 2; string password_hash = 3; int64 created_at = 4; repeated string roles = 5; }

const (
	messageID        protowire.Number = 1
	messageCreatedAt protowire.Number = 2
	messageAuthor    protowire.Number = 3
	messageContent   protowire.Number = 4

	userID           protowire.Number = 1
	userUsername     protowire.Number = 2
	userPasswordHash protowire.Number = 3
	userCreatedAt    protowire.Number = 4
	userRoles        protowire.Number = 5
)

func EncodeMessage(m domain.Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, messageID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ID))
	b = protowire.AppendTag(b, messageCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.CreatedAt.UnixNano()))
	b = protowire.AppendTag(b, messageAuthor, protowire.BytesType)
	b = protowire.AppendString(b, m.Author)
	b = protowire.AppendTag(b, messageContent, protowire.BytesType)
	b = protowire.AppendString(b, m.Content)
	return b
}

func DecodeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	err := decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == messageID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.ID = domain.MessageID(v)
			return n, nil
		case num == messageCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.CreatedAt = time.Unix(0, int64(v)).UTC()
			return n, nil
		case num == messageAuthor && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Author = v
			return n, nil
		case num == messageContent && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Content = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

func encodeUser(u User) []byte {
	var b []byte
	b = protowire.AppendTag(b, userID, protowire.BytesType)
	b = protowire.AppendString(b, u.ID)
	b = protowire.AppendTag(b, userUsername, protowire.BytesType)
	b = protowire.AppendString(b, u.Username)
	b = protowire.AppendTag(b, userPasswordHash, protowire.BytesType)
	b = protowire.AppendString(b, u.PasswordHash)
	b = protowire.AppendTag(b, userCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(u.CreatedAt.Unix()))
	for _, role := range u.Roles {
		b = protowire.AppendTag(b, userRoles, protowire.BytesType)
		b = protowire.AppendString(b, role)
	}
	return b
}

func DecodeUser(b []byte) (User, error) {
	var u User
	err := decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			switch num {
			case userID:
				u.ID = v
			case userUsername:
				u.Username = v
			case userPasswordHash:
				u.PasswordHash = v
			case userRoles:
				if n >= 0 {
					u.Roles = append(u.Roles, v)
				}
			}
			return n, nil
		}
		if num == userCreatedAt && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			u.CreatedAt = time.Unix(int64(v), 0).UTC()
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}

// decodeFields walks every field of b. field consumes the value and returns
// its length, negative on malformed input like the protowire Consume functions.
func decodeFields(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}
