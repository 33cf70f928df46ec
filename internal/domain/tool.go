package domain

const (
	ToolOpenLink     = "open_link"
	ToolSystemAction = "system_action"
)

type SystemAction string

const (
	SystemActionLock       SystemAction = "lock"
	SystemActionUnlock     SystemAction = "unlock"
	SystemActionSleep      SystemAction = "sleep"
	SystemActionDisconnect SystemAction = "disconnect"
	SystemActionShutdown   SystemAction = "shutdown"
)

// ToolCall is a function call requested by the remote model.
type ToolCall struct {
	Name string
	ID   string
	Args map[string]string
}

func (c ToolCall) Arg(name string) string {
	return c.Args[name]
}

// ToolResponse answers exactly one ToolCall; ID must echo the call's ID.
type ToolResponse struct {
	Name   string
	ID     string
	Result string
}

type ToolParam struct {
	Name        string
	Description string
	Required    bool
}

// ToolDeclaration describes a callable tool. All parameters are strings.
type ToolDeclaration struct {
	Name        string
	Description string
	Params      []ToolParam
}
