package entity

import "fmt"

// MessageStatus mirrors the destination bridge's view of a message. The
// state machine is enforced on chain; the client only reads it.
type MessageStatus uint8

const (
	MessageStatusNew MessageStatus = iota
	MessageStatusRetriable
	MessageStatusDone
	MessageStatusFailed
)

var messageStatusNames = [...]string{"NEW", "RETRIABLE", "DONE", "FAILED"}

func (s MessageStatus) String() string {
	if int(s) < len(messageStatusNames) {
		return messageStatusNames[s]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
}

func (s MessageStatus) IsFinal() bool {
	return s == MessageStatusDone || s == MessageStatusFailed
}

func (s MessageStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *MessageStatus) UnmarshalText(text []byte) error {
	for i, name := range messageStatusNames {
		if name == string(text) {
			*s = MessageStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown message status %q", text)
}
