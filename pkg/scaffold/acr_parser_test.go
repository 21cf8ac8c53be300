package scaffold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseACR_ExtractsThoughtAndAction(t *testing.T) {
	text := "THOUGHT: I should check the file first\nACTION: bash cat hello.txt"

	parsed, err := ParseACR(text)
	require.NoError(t, err)
	assert.Equal(t, "I should check the file first", parsed.Thought)
	assert.Equal(t, "bash", parsed.ActionName)
	assert.Equal(t, "cat hello.txt", parsed.ActionArgs)
}

func TestParseACR_MultiLineArgs(t *testing.T) {
	text := "THOUGHT: write the file\n" +
		"ACTION: edit_file\n" +
		"path: hello.txt\n" +
		"content: |\n" +
		"  Hi there\n" +
		"  second line"

	parsed, err := ParseACR(text)
	require.NoError(t, err)
	assert.Equal(t, "edit_file", parsed.ActionName)
	assert.Contains(t, parsed.ActionArgs, "second line")
}

func TestParseACR_MissingActionIsParseError(t *testing.T) {
	_, err := ParseACR("THOUGHT: just thinking, no action here")
	require.Error(t, err)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestParseACR_MissingThoughtIsParseError(t *testing.T) {
	_, err := ParseACR("ACTION: submit")
	require.Error(t, err)
}

func TestParseToolCall_JSONObject(t *testing.T) {
	call, ok := ParseToolCall(`{"tool": "bash", "arguments": {"cmd": "ls"}}`)
	require.True(t, ok)
	assert.Equal(t, "bash", call.Name)
	assert.Equal(t, "ls", call.Arguments["cmd"])
}

func TestParseToolCall_FunctionCallSyntax(t *testing.T) {
	call, ok := ParseToolCall(`I'll run this: bash({"cmd": "ls -la"})`)
	require.True(t, ok)
	assert.Equal(t, "bash", call.Name)
	assert.Equal(t, "ls -la", call.Arguments["cmd"])
}

func TestParseToolCall_FencedJSON(t *testing.T) {
	text := "Here is my call:\n```json\n{\"name\": \"read_file\", \"args\": {\"path\": \"a.txt\"}}\n```"
	call, ok := ParseToolCall(text)
	require.True(t, ok)
	assert.Equal(t, "read_file", call.Name)
	assert.Equal(t, "a.txt", call.Arguments["path"])
}

func TestParseToolCall_NoMatchReturnsFalse(t *testing.T) {
	_, ok := ParseToolCall("just some plain prose with no tool call in it")
	assert.False(t, ok)
}

func TestIsTerminalResponse(t *testing.T) {
	assert.True(t, isTerminalResponse("I have successfully completed the task."))
	assert.True(t, isTerminalResponse("TASK IS COMPLETE now."))
	assert.False(t, isTerminalResponse("still working on it"))
}
