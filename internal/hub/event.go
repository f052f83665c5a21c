package hub

import "encoding/json"

// Client→server event names. These are the authoritative protocol names
// shared with the browser client and the execution-agent bridge.
const (
	EvtJoinClan          = "join_clan"
	EvtLeaveClan         = "leave_clan"
	EvtSwitchTopic       = "switch_topic"
	EvtSendMessage       = "send_message"
	EvtEditMessage       = "edit_message"
	EvtDeleteMessage     = "delete_message"
	EvtReactMessage      = "react_message"
	EvtPinMessage        = "pin_message"
	EvtUnpinMessage      = "unpin_message"
	EvtTyping            = "typing"
	EvtStopTyping        = "stop_typing"
	EvtSendTradeCard     = "send_trade_card"
	EvtEditTradeCard     = "edit_trade_card"
	EvtTrackTrade        = "track_trade"
	EvtUpdateTradeStatus = "update_trade_status"
	EvtExecuteAction     = "execute_trade_action"
	EvtJoinDM            = "join_dm"
	EvtSendDM            = "send_dm"
	EvtEditDM            = "edit_dm"
	EvtDeleteDM          = "delete_dm"
	EvtDMTyping          = "dm_typing"
	EvtDMRead            = "dm_read"
)

// Server→client event names.
const (
	EvtReceiveMessage     = "receive_message"
	EvtMessageEdited      = "message_edited"
	EvtMessageDeleted     = "message_deleted"
	EvtMessageReacted     = "message_reacted"
	EvtMessagePinned      = "message_pinned"
	EvtMessageUnpinned    = "message_unpinned"
	EvtUserTyping         = "user_typing"
	EvtUserStopTyping     = "user_stop_typing"
	EvtPresenceUpdate     = "presence_update"
	EvtTradeStatusUpdated = "trade_status_updated"
	EvtTradeActionExec    = "trade_action_executed"
	EvtReceiveDM          = "receive_dm"
	EvtDMEdited           = "dm_edited"
	EvtDMDeleted          = "dm_deleted"
	EvtDMMarkedRead       = "dm_marked_read"
	EvtDMUserTyping       = "dm_user_typing"
	EvtError              = "error"
)

// Envelope is the inbound wire frame from a client.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Event is an outbound frame delivered to sessions.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// ErrorPayload is always addressed to the single originating session.
type ErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
