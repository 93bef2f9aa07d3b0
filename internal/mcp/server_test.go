package mcp

import (
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/workflow"
)

func TestServerRegistersBattleTools(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	processor := workflow.NewProcessor(logger, nil)

	server, err := NewServer(processor, logger)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	want := []string{
		"synthesize_speech",
		"prepare_avatar",
		"generate_lipsync",
		"animate_speech",
		"generate_character_image",
		"avatar_status",
		"process_verse",
		"process_battle",
	}
	if got := server.GetToolNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("tool names = %v, want %v", got, want)
	}

	if processor.Animator() == nil {
		t.Error("animator adapter was not attached")
	}
}
