package dto

// SendMessageRequest carries the message body. Emptiness and length are
// checked by the service so the rules live in one place.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// ListMessagesQuery selects an offset page (page, limit) or a cursor page
// (before or before_seq, limit). Before is an RFC 3339 timestamp; before_seq
// is the next_before_seq of a previous page.
type ListMessagesQuery struct {
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
	Before    string `form:"before"`
	BeforeSeq int64  `form:"before_seq"`
}
