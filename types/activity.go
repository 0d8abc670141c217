package types

import (
	"encoding/json"
	"time"
)

// ActivityType is the kind of a conversation activity.
type ActivityType string

const (
	ActivityMessage            ActivityType = "message"
	ActivityEvent              ActivityType = "event"
	ActivityConversationUpdate ActivityType = "conversationUpdate"
	ActivityEndOfConversation  ActivityType = "endOfConversation"
	ActivityTrace              ActivityType = "trace"
)

// Well-known event names exchanged between the host and a skill.
const (
	EventCancelAllSkillDialogs = "cancel all skill dialogs"
	EventTokenRequest          = "tokens/request"
	EventTokenResponse         = "tokens/response"
	EventFallbackRequest       = "fallback/request"
	EventFallbackHandled       = "fallback/handled"
)

// SemanticActionState values sent to skills.
const (
	SemanticActionStart    = "start"
	SemanticActionContinue = ""
)

// ChannelAccount identifies a participant of a conversation.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Entity is a typed, free-form payload attached to a semantic action.
type Entity struct {
	Type       string         `json:"type,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// SemanticAction describes the intended action plus its entities.
type SemanticAction struct {
	ID       string            `json:"id"`
	Entities map[string]Entity `json:"entities"`
	State    string            `json:"state"`
}

// Activity is the unit exchanged between the host surface, the host and skills.
type Activity struct {
	Type           ActivityType        `json:"type"`
	ID             string              `json:"id,omitempty"`
	Timestamp      time.Time           `json:"timestamp,omitempty"`
	ChannelID      string              `json:"channelId,omitempty"`
	ServiceURL     string              `json:"serviceUrl,omitempty"`
	From           ChannelAccount      `json:"from"`
	Recipient      ChannelAccount      `json:"recipient"`
	Conversation   ConversationAccount `json:"conversation"`
	ReplyToID      string              `json:"replyToId,omitempty"`
	Locale         string              `json:"locale,omitempty"`
	Text           string              `json:"text,omitempty"`
	Speak          string              `json:"speak,omitempty"`
	Name           string              `json:"name,omitempty"`
	Label          string              `json:"label,omitempty"`
	ValueType      string              `json:"valueType,omitempty"`
	Value          json.RawMessage     `json:"value,omitempty"`
	SemanticAction *SemanticAction     `json:"semanticAction,omitempty"`
	Properties     map[string]any      `json:"properties,omitempty"`
}

// Clone returns a copy that shares no mutable maps or buffers with a.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	out := *a
	if a.Value != nil {
		out.Value = append(json.RawMessage(nil), a.Value...)
	}
	if a.SemanticAction != nil {
		sa := *a.SemanticAction
		if a.SemanticAction.Entities != nil {
			sa.Entities = make(map[string]Entity, len(a.SemanticAction.Entities))
			for k, v := range a.SemanticAction.Entities {
				sa.Entities[k] = v
			}
		}
		out.SemanticAction = &sa
	}
	if a.Properties != nil {
		out.Properties = make(map[string]any, len(a.Properties))
		for k, v := range a.Properties {
			out.Properties[k] = v
		}
	}
	return &out
}

// IsEvent reports whether the activity is an event with the given name.
func (a *Activity) IsEvent(name string) bool {
	return a != nil && a.Type == ActivityEvent && a.Name == name
}

// SetValue marshals v into the activity value.
func (a *Activity) SetValue(v any) error {
	if v == nil {
		a.Value = nil
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	a.Value = data
	return nil
}

// NewEvent creates an event activity addressed within the same conversation as ref.
func NewEvent(ref *Activity, name string) *Activity {
	ev := &Activity{
		Type:      ActivityEvent,
		Name:      name,
		Timestamp: time.Now().UTC(),
	}
	if ref != nil {
		ev.ChannelID = ref.ChannelID
		ev.ServiceURL = ref.ServiceURL
		ev.From = ref.From
		ev.Recipient = ref.Recipient
		ev.Conversation = ref.Conversation
		ev.Locale = ref.Locale
	}
	return ev
}

// NewTrace creates a trace activity for the host surface.
func NewTrace(ref *Activity, name, label string, value any) *Activity {
	tr := NewEvent(ref, name)
	tr.Type = ActivityTrace
	tr.Label = label
	_ = tr.SetValue(value)
	if ref != nil {
		tr.From, tr.Recipient = ref.Recipient, ref.From
		tr.ReplyToID = ref.ID
	}
	return tr
}

// NewMessage creates a message reply to ref.
func NewMessage(ref *Activity, text string) *Activity {
	msg := NewEvent(ref, "")
	msg.Type = ActivityMessage
	msg.Text = text
	msg.Speak = text
	if ref != nil {
		msg.From, msg.Recipient = ref.Recipient, ref.From
		msg.ReplyToID = ref.ID
	}
	return msg
}
