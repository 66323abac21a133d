package kvs

import "encoding/json"

// commandOp tags which variant a Command record holds.
type commandOp string

const (
	opSet    commandOp = "set"
	opRemove commandOp = "remove"
)

// Command is the self-delimiting, JSON-encoded record appended to a
// segment for every Set or Remove. It is the unit of on-disk storage:
// every byte range the index points at is the encoding of exactly one
// Command.
type Command struct {
	Op    commandOp `json:"op"`
	Key   string    `json:"key"`
	Value string    `json:"value,omitempty"`
}

// SetCommand builds a Command recording a Set of key to value.
func SetCommand(key, value string) Command {
	return Command{Op: opSet, Key: key, Value: value}
}

// RemoveCommand builds a Command recording a Remove of key.
func RemoveCommand(key string) Command {
	return Command{Op: opRemove, Key: key}
}

// IsSet reports whether c is a Set record.
func (c Command) IsSet() bool { return c.Op == opSet }

// IsRemove reports whether c is a Remove record.
func (c Command) IsRemove() bool { return c.Op == opRemove }

// Encode serializes c as a single JSON value with no trailing separator;
// encoding/json's Marshal already produces exactly one self-delimiting
// value, which is what segment replay and the wire protocol both rely on.
func (c Command) Encode() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, WrapSerde(err)
	}
	return b, nil
}

// DecodeCommand decodes exactly one Command from b.
func DecodeCommand(b []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(b, &c); err != nil {
		return Command{}, WrapSerde(err)
	}
	return c, nil
}
