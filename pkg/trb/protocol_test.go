package trb

import (
	"encoding/json"
	"testing"
)

func TestNewCommandRoundTrip(t *testing.T) {
	cmd, err := NewCommand(CmdAddToQueue, 42, AddToQueueData{Query: "test song", RepeatCount: 1, RequesterName: "tester"})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	cmd.ID = "id-1"

	payload, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != TypeCommand || decoded.Action != CmdAddToQueue || decoded.GuildID != 42 {
		t.Fatalf("unexpected envelope: %+v", decoded)
	}

	var data AddToQueueData
	if err := json.Unmarshal(decoded.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Query != "test song" {
		t.Fatalf("unexpected query %q", data.Query)
	}
}

func TestValidateMessageMissingFields(t *testing.T) {
	if err := ValidateMessage(Message{}); err == nil {
		t.Fatalf("expected error for empty message")
	}

	msg, err := NewCommand(CmdSkipSong, 1, struct{}{})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if err := ValidateMessage(msg); err == nil {
		t.Fatalf("expected error for missing id")
	}
	msg.ID = "id"
	if err := ValidateMessage(msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMessageRejectsBadGuild(t *testing.T) {
	msg, _ := NewCommand(CmdGetState, 0, struct{}{})
	msg.ID = "id"
	if err := ValidateMessage(msg); err == nil {
		t.Fatalf("expected error for guild_id 0")
	}
}

func TestKnownCommand(t *testing.T) {
	for _, action := range []string{CmdConnect, CmdDisconnect, CmdAddToQueue, CmdSkipSong, CmdPlayNext, CmdGetState, CmdResetPlayer, CmdRemoveFromQueue, CmdLoopTrack, CmdUnloopTrack} {
		if !KnownCommand(action) {
			t.Fatalf("expected %s to be known", action)
		}
	}
	if KnownCommand("SHUFFLE") {
		t.Fatalf("expected SHUFFLE to be unknown")
	}
}

func TestReplyShapes(t *testing.T) {
	reply := SuccessReply("id", SkippedData{Status: "nothing_playing"})
	payload, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["status"] != "success" {
		t.Fatalf("unexpected status %v", decoded["status"])
	}
	if _, ok := decoded["message"]; ok {
		t.Fatalf("success reply should omit message")
	}

	errReply := ErrorReply("id", "boom")
	if errReply.Status != StatusError || errReply.Message != "boom" {
		t.Fatalf("unexpected error reply: %+v", errReply)
	}
}
