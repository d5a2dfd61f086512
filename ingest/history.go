package ingest

import (
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/becomeliminal/nim-sleepcoach/core"
)

// LoadProfile reads a user profile. A missing file returns nil and no error.
func LoadProfile(path string) (*core.Profile, error) {
	doc, err := readFile(path)
	if err != nil || !doc.Exists() {
		return nil, err
	}
	if !doc.IsObject() {
		return nil, fmt.Errorf("profile %s: expected a JSON object", path)
	}
	return core.ParseProfile(doc), nil
}

// LoadChatHistory reads previous conversation messages. Each entry carries
// a role (default "user") and content (default ""). A missing file returns
// no messages and no error.
func LoadChatHistory(path string) ([]core.Message, error) {
	doc, err := readFile(path)
	if err != nil || !doc.Exists() {
		return nil, err
	}
	if !doc.IsArray() {
		return nil, fmt.Errorf("chat history %s: expected a JSON array", path)
	}

	var msgs []core.Message
	for i, item := range doc.Array() {
		role := core.RoleUser
		if r := item.Get("role"); r.Exists() {
			role = core.Role(r.String())
		}
		if !role.Valid() {
			return nil, fmt.Errorf("chat history %s: message %d has unknown role %q", path, i, role)
		}
		msgs = append(msgs, core.NewMessage(role, core.FlexString(item.Get("content"))))
	}
	return msgs, nil
}

func readFile(path string) (gjson.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return gjson.Result{}, nil
		}
		return gjson.Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("read %s: invalid JSON", path)
	}
	return gjson.ParseBytes(raw), nil
}
