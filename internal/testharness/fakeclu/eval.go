package fakeclu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rodis120/grenton-go/pkg/wire"
)

const (
	typedPrefix = `(load("result = `
	typedSuffix = ` return (type(result) .. \":\" .. tostring(result))")())`
)

var (
	getRe        = regexp.MustCompile(`^(\w+):get\((\d+)\)$`)
	setRe        = regexp.MustCompile(`^(\w+):set\((\d+),(.*)\)$`)
	executeRe    = regexp.MustCompile(`^(\w+):execute\((\d+),(.*)\)$`)
	registerRe   = regexp.MustCompile(`^SYSTEM:clientRegister\("([^"]*)",(\d+),(\d+),\{(.*)\}\)$`)
	destroyRe    = regexp.MustCompile(`^SYSTEM:clientDestroy\("([^"]*)",(\d+),(\d+)\)$`)
	featureRefRe = regexp.MustCompile(`\{([^,{}]+),(\d+)\}`)

	luaUnescaper = strings.NewReplacer(`\\`, `\`, `\"`, `"`)
)

type pagePush struct {
	key    pageKey
	values []any
}

// evaluate answers a request payload. Typed wrappers answer "<type>:<value>",
// everything else answers the raw value text.
func (c *CLU) evaluate(payload string) (string, bool) {
	if strings.HasPrefix(payload, typedPrefix) && strings.HasSuffix(payload, typedSuffix) {
		expr := luaUnescaper.Replace(payload[len(typedPrefix) : len(payload)-len(typedSuffix)])
		v, _ := c.eval(expr)
		return typed(v), true
	}
	if payload == wire.CollectGarbage() {
		c.mu.Lock()
		c.gcRuns++
		c.mu.Unlock()
		return "", false
	}
	v, ok := c.eval(payload)
	if !ok {
		return "nil", true
	}
	return raw(v), true
}

// eval runs one statement and returns its result.
func (c *CLU) eval(expr string) (any, bool) {
	if expr == wire.CheckAlive() {
		return fmt.Sprintf("%08x", c.Serial), true
	}
	if m := getRe.FindStringSubmatch(expr); m != nil {
		return c.Value(ref(m[1], m[2])), true
	}
	if m := setRe.FindStringSubmatch(expr); m != nil {
		c.SetValue(ref(m[1], m[2]), parseValue(m[3]))
		return nil, true
	}
	if executeRe.MatchString(expr) {
		return nil, true
	}
	if m := registerRe.FindStringSubmatch(expr); m != nil {
		return c.register(m), true
	}
	if m := destroyRe.FindStringSubmatch(expr); m != nil {
		port, _ := strconv.Atoi(m[2])
		id, _ := strconv.Atoi(m[3])
		c.mu.Lock()
		delete(c.pages, pageKey{addr: joinAddr(m[1], port), clientID: id})
		c.destroyed = append(c.destroyed, id)
		c.mu.Unlock()
		return nil, true
	}
	return nil, false
}

func (c *CLU) register(m []string) string {
	port, _ := strconv.Atoi(m[2])
	id, _ := strconv.Atoi(m[3])

	var refs []wire.FeatureRef
	for _, f := range featureRefRe.FindAllStringSubmatch(m[4], -1) {
		refs = append(refs, ref(f[1], f[2]))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := pageKey{addr: joinAddr(m[1], port), clientID: id}
	if len(refs) == 0 {
		delete(c.pages, key)
	} else {
		c.pages[key] = refs
	}
	return fmt.Sprintf("clientReport:%d:%s", id, formatList(c.vectorLocked(refs)))
}

func (c *CLU) affectedPagesLocked(changed wire.FeatureRef) []pagePush {
	var out []pagePush
	for key, refs := range c.pages {
		for _, r := range refs {
			if r == changed {
				out = append(out, pagePush{key: key, values: c.vectorLocked(refs)})
				break
			}
		}
	}
	return out
}

func (c *CLU) vectorLocked(refs []wire.FeatureRef) []any {
	values := make([]any, len(refs))
	for i, r := range refs {
		values[i] = c.values[r]
	}
	return values
}

func ref(objectID, index string) wire.FeatureRef {
	i, _ := strconv.Atoi(index)
	return wire.FeatureRef{ObjectID: objectID, Index: i}
}

func joinAddr(ip string, port int) string {
	return fmt.Sprintf("%s:%d", ip, port)
}

func parseValue(s string) any {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return luaUnescaper.Replace(s[1 : len(s)-1])
	}
	values, err := wire.ParseList(s)
	if err != nil || len(values) == 0 {
		return nil
	}
	return values[0]
}

func typed(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil:nil"
	case string:
		return "string:" + x
	case bool:
		return "boolean:" + strconv.FormatBool(x)
	case float64:
		return "number:" + strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return "userdata:" + fmt.Sprint(x)
	}
}

func raw(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return x
	default:
		return wire.FormatValue(x)
	}
}

func formatList(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = wire.FormatValue(v)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
