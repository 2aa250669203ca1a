package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// flexID accepts a JSON number or a numeric string.
type flexID struct {
	value int64
	set   bool
}

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("not an integer id: %s", data)
	}
	f.value, f.set = v, true
	return nil
}

type inboundFrame struct {
	ChatRoomID flexID  `json:"chatRoomId"`
	UserID     flexID  `json:"userId"`
	Message    *string `json:"message"`
}

// DecodeFrame parses and validates one inbound text frame. maxLength caps the
// message in characters; zero means no cap. The returned error is an *Error
// of KindDecode or KindValidation; the frame is only meaningful when the
// error is nil.
func DecodeFrame(raw []byte, maxLength int) (ChatFrame, error) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		return ChatFrame{}, NewError(KindDecode, "unmarshal", err)
	}
	if !in.ChatRoomID.set || in.ChatRoomID.value <= 0 {
		return ChatFrame{}, NewError(KindDecode, "chatRoomId", errors.New("chatRoomId must be a positive integer"))
	}
	if !in.UserID.set || in.UserID.value <= 0 {
		return ChatFrame{}, NewError(KindDecode, "userId", errors.New("userId must be a positive integer"))
	}

	msg, err := ValidateMessage(in.Message)
	if err != nil {
		return ChatFrame{}, NewError(KindValidation, "message", err)
	}
	if maxLength > 0 && utf8.RuneCountInString(msg) > maxLength {
		return ChatFrame{}, NewError(KindValidation, "message", ErrMessageTooLong)
	}

	return ChatFrame{
		ChatRoomID: in.ChatRoomID.value,
		UserID:     in.UserID.value,
		Message:    msg,
	}, nil
}

// EncodeMessage serializes a chat message into its broadcast frame.
func EncodeMessage(msg *ChatMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat message: %w", err)
	}
	return data, nil
}
