package ldbridge

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/launchdarkly/flutter-client-bridge/util"
)

const (
	contextKeyKind = "kind"
	contextKeyKey  = "key"
	contextKeyMeta = "_meta"

	metaKeyPrivateAttributes = "privateAttributes"
)

// ContextFromBridge builds a context from a list of per-kind attribute maps. A single
// element gives a single-kind context, several give a multi-kind context.
//
// Each element needs a string "key"; "kind" defaults to "user". Every other entry is set
// as an attribute, except "_meta" whose "privateAttributes" list names the attributes to
// redact from analytics events.
func ContextFromBridge(bridgeValue interface{}) (ldcontext.Context, error) {
	elements, ok := bridgeValue.([]interface{})
	if !ok {
		return ldcontext.Context{}, &InvalidContextError{Index: -1, Reason: fmt.Sprintf("expected a list of context maps, got %T", bridgeValue)}
	}
	if len(elements) == 0 {
		return ldcontext.Context{}, &InvalidContextError{Index: -1, Reason: "context list is empty"}
	}

	contexts := make([]ldcontext.Context, 0, len(elements))
	for i, element := range elements {
		c, err := contextFromElement(i, element)
		if err != nil {
			return ldcontext.Context{}, err
		}
		contexts = append(contexts, c)
	}
	if len(contexts) == 1 {
		return contexts[0], nil
	}

	multi := ldcontext.NewMultiBuilder()
	for _, c := range contexts {
		multi.Add(c)
	}
	c, err := multi.TryBuild()
	if err != nil {
		return ldcontext.Context{}, &InvalidContextError{Index: -1, Reason: "multi-kind context failed validation", Err: err}
	}
	return c, nil
}

func contextFromElement(index int, element interface{}) (ldcontext.Context, error) {
	attributes, ok := element.(map[string]interface{})
	if !ok {
		return ldcontext.Context{}, &InvalidContextError{Index: index, Reason: fmt.Sprintf("expected a map, got %T", element)}
	}
	key, ok := attributes[contextKeyKey].(string)
	if !ok {
		return ldcontext.Context{}, &InvalidContextError{Index: index, Reason: "key is missing or not a string"}
	}
	kind := ldcontext.DefaultKind
	if raw, present := attributes[contextKeyKind]; present && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return ldcontext.Context{}, &InvalidContextError{Index: index, Reason: fmt.Sprintf("kind must be a string, got %T", raw)}
		}
		kind = ldcontext.Kind(s)
	}

	builder := ldcontext.NewBuilder(key)
	builder.Kind(kind)
	for name, raw := range attributes {
		switch name {
		case contextKeyKind, contextKeyKey, contextKeyMeta:
			continue
		}
		value, err := decodeValue(raw, []string{name})
		if err != nil {
			return ldcontext.Context{}, &InvalidContextError{Index: index, Reason: "attribute cannot be decoded", Err: err}
		}
		if !builder.TrySetValue(name, value) {
			util.Warnf("Ignoring attribute %q of %s context: value of type %s is not allowed", name, kind, value.Type())
		}
	}

	privateAttributes, err := privateAttributesFrom(attributes[contextKeyMeta])
	if err != nil {
		return ldcontext.Context{}, &InvalidContextError{Index: index, Reason: err.Error()}
	}
	if len(privateAttributes) > 0 {
		builder.Private(privateAttributes...)
	}

	c, err := builder.TryBuild()
	if err != nil {
		return ldcontext.Context{}, &InvalidContextError{Index: index, Reason: "context failed validation", Err: err}
	}
	return c, nil
}

// privateAttributesFrom reads _meta.privateAttributes. A missing or null list means none.
func privateAttributesFrom(meta interface{}) ([]string, error) {
	if meta == nil {
		return nil, nil
	}
	metaMap, ok := meta.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("_meta must be a map, got %T", meta)
	}
	return stringList(metaMap[metaKeyPrivateAttributes], "_meta.privateAttributes")
}

func stringList(raw interface{}, name string) ([]string, error) {
	switch list := raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, element := range list {
			s, ok := element.(string)
			if !ok {
				return nil, fmt.Errorf("%s must only hold strings, found %T", name, element)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return list, nil
	default:
		return nil, fmt.Errorf("%s must be a list, got %T", name, raw)
	}
}

// legacyUserStringAttributes are the built-in string attributes of the pre-context user model.
var legacyUserStringAttributes = []string{"secondary", "ip", "email", "name", "firstName", "lastName", "avatar", "country"}

// ContextFromUser converts a legacy user map into a context of kind "user". Built-in
// attributes and "custom" entries become attributes; "privateAttributeNames" marks
// which of them are private.
func ContextFromUser(user map[string]interface{}) (ldcontext.Context, error) {
	key, ok := user[contextKeyKey].(string)
	if !ok {
		return ldcontext.Context{}, &InvalidContextError{Index: -1, Reason: "user key is missing or not a string"}
	}
	builder := ldcontext.NewBuilder(key)

	if custom, ok := user["custom"].(map[string]interface{}); ok {
		for name, raw := range custom {
			value, err := decodeValue(raw, []string{"custom", name})
			if err != nil {
				return ldcontext.Context{}, &InvalidContextError{Index: -1, Reason: "custom attribute cannot be decoded", Err: err}
			}
			if !builder.TrySetValue(name, value) {
				util.Warnf("Ignoring custom user attribute %q", name)
			}
		}
	}
	for _, name := range legacyUserStringAttributes {
		if s, ok := user[name].(string); ok {
			builder.SetValue(name, ldvalue.String(s))
		}
	}
	if anonymous, ok := user["anonymous"].(bool); ok {
		builder.Anonymous(anonymous)
	}

	privateAttributes, err := stringList(user["privateAttributeNames"], "privateAttributeNames")
	if err != nil {
		return ldcontext.Context{}, &InvalidContextError{Index: -1, Reason: err.Error()}
	}
	if len(privateAttributes) > 0 {
		builder.Private(privateAttributes...)
	}

	c, err := builder.TryBuild()
	if err != nil {
		return ldcontext.Context{}, &InvalidContextError{Index: -1, Reason: "user failed validation", Err: err}
	}
	return c, nil
}

// ContextToBridge is the inverse of ContextFromBridge: one attribute map per kind,
// ordered by kind.
func ContextToBridge(c ldcontext.Context) ([]interface{}, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var document map[string]interface{}
	if err = json.Unmarshal(raw, &document); err != nil {
		return nil, err
	}
	if document[contextKeyKind] != string(ldcontext.MultiKind) {
		return []interface{}{document}, nil
	}

	kinds := make([]string, 0, len(document)-1)
	for kind := range document {
		if kind != contextKeyKind {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)
	out := make([]interface{}, 0, len(kinds))
	for _, kind := range kinds {
		element, ok := document[kind].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected %T for %s in multi-kind context", document[kind], kind)
		}
		element[contextKeyKind] = kind
		out = append(out, element)
	}
	return out, nil
}
