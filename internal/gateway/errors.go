package gateway

import "fmt"

// RejectionError：场馆在成交前拒绝了订单。原因原样保留，
// 处置方式是终止本次执行（FAILED），不产生裸露仓位。
type RejectionError struct {
	Venue  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected order: %s", e.Venue, e.Reason)
}

// PartialBracketError：入场腿已被接受但保护腿挂载失败。
// 与提交前拒绝严格区分——此时场上有裸露仓位，补救动作是立即平仓，
// 绝不允许当作全新入场重试（那会造成双倍敞口）。
type PartialBracketError struct {
	Venue        string
	EntryOrderID string
	FailedLeg    string // "stop" 或 "take_profit"
	Reason       string
}

func (e *PartialBracketError) Error() string {
	return fmt.Sprintf("%s bracket leg %s failed after entry %s accepted: %s",
		e.Venue, e.FailedLeg, e.EntryOrderID, e.Reason)
}

// AuthError：登录/授权失败。对启动流程是致命的。
type AuthError struct {
	Venue  string
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authorization failed: %s", e.Venue, e.Reason)
}
