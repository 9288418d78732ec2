package domain

// CaptchaSession is a single-use human-verification puzzle. The answer is
// stored only as a bcrypt hash; Token is the opaque session id handed to the
// client. ExpiresAt is the DynamoDB TTL attribute.
type CaptchaSession struct {
	Token      string `json:"token" dynamodbav:"token"`
	AnswerHash []byte `json:"-" dynamodbav:"answer_hash"`
	Used       bool   `json:"-" dynamodbav:"used"`
	Attempts   int    `json:"-" dynamodbav:"attempts"`
	ExpiresAt  int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
	CreatedAt  int64  `json:"created_at" dynamodbav:"created_at"`
}
