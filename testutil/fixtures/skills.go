// Package fixtures 提供测试用的技能清单与活动样例。
package fixtures

import (
	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/types"
)

// Manifest 返回一个合法的技能清单，端点指向 <id>.local
func Manifest(id string, actions ...skills.Action) *skills.Manifest {
	return &skills.Manifest{
		ID:       id,
		Name:     id,
		Endpoint: "http://" + id + ".local/api/messages",
		MSAAppID: id + "-app",
		Actions:  actions,
	}
}

// Action 返回声明了给定槽位的动作
func Action(id string, slots ...string) skills.Action {
	a := skills.Action{ID: id}
	for _, name := range slots {
		a.Definition.Slots = append(a.Definition.Slots, skills.Slot{Name: name})
	}
	return a
}

// CalendarManifest 日历技能：createEvent(date)、findMeeting(date, attendee)
func CalendarManifest() *skills.Manifest {
	m := Manifest("calendar",
		Action("createEvent", "date"),
		Action("findMeeting", "date", "attendee"),
	)
	m.Name = "Calendar"
	return m
}

// WeatherManifest 天气技能：forecast(location)
func WeatherManifest() *skills.Manifest {
	m := Manifest("weather", Action("forecast", "location"))
	m.Name = "Weather"
	return m
}

// Message 返回会话 conversationID 中来自 user-1 的用户消息
func Message(conversationID, text string) *types.Activity {
	return &types.Activity{
		Type:         types.ActivityMessage,
		ID:           "act-1",
		Text:         text,
		Speak:        text,
		From:         types.ChannelAccount{ID: "user-1"},
		Recipient:    types.ChannelAccount{ID: "assistant"},
		Conversation: types.ConversationAccount{ID: conversationID},
	}
}
