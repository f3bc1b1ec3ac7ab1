package domain

// Message is a localizable text reference: a catalog key plus positional
// arguments. Args[i] fills placeholder %[i+1]s of the catalog template.
type Message struct {
	Key  string
	Args []string
}

// NewMessage builds a message from its key and arguments.
func NewMessage(key string, args ...string) Message {
	return Message{Key: key, Args: append([]string(nil), args...)}
}

// Command description keys.
const (
	MsgAddEvent             = "cmd.add_event"
	MsgRemoveEvent          = "cmd.remove_event"
	MsgRenameEvent          = "cmd.rename_event"
	MsgSetLabel             = "cmd.set_label"
	MsgRetypeEvent          = "cmd.retype_event"
	MsgSetHouseState        = "cmd.set_house_state"
	MsgSetFlavor            = "cmd.set_flavor"
	MsgSetExpression        = "cmd.set_expression"
	MsgUpdateFormula        = "cmd.update_formula"
	MsgAddFaultTree         = "cmd.add_fault_tree"
	MsgAddFaultTreeWithGate = "cmd.add_fault_tree_with_gate"
	MsgRemoveFaultTree      = "cmd.remove_fault_tree"
	MsgRemoveFaultTreeRoot  = "cmd.remove_fault_tree_with_root"
	MsgRenameModel          = "cmd.rename_model"
	MsgLoadModel            = "cmd.load_model"
)
