package domain

// NoticeKind tells the client how to present a system notice.
type NoticeKind string

const (
	NoticeInfo  NoticeKind = "info"
	NoticeError NoticeKind = "error"
	NoticeUsage NoticeKind = "usage"
	NoticeToken NoticeKind = "token"
)

// Notice is a system line addressed to one connection.
// It is never stored and carries no MessageID.
type Notice struct {
	Kind NoticeKind
	Text string
}

func Info(text string) Notice  { return Notice{Kind: NoticeInfo, Text: text} }
func Error(text string) Notice { return Notice{Kind: NoticeError, Text: text} }
func Usage(text string) Notice { return Notice{Kind: NoticeUsage, Text: text} }
