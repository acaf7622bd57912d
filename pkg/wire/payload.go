package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// FeatureRef addresses one indexed property of a device object.
type FeatureRef struct {
	ObjectID string
	Index    int
}

var luaEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// FormatValue renders v as a Lua literal: strings are double quoted,
// booleans lower-case, numbers in plain decimal and nil as "nil".
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return `"` + luaEscaper.Replace(x) + `"`
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", x)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// CheckAlive returns the liveness probe payload.
func CheckAlive() string {
	return "checkAlive()"
}

// Get returns the payload reading feature index of objectID.
func Get(objectID string, index int) string {
	return fmt.Sprintf("%s:get(%d)", objectID, index)
}

// Set returns the payload writing value to feature index of objectID.
func Set(objectID string, index int, value any) string {
	return fmt.Sprintf("%s:set(%d,%s)", objectID, index, FormatValue(value))
}

// Execute returns the payload invoking method index of objectID. Without
// arguments a single 0 placeholder is sent, which the device expects.
func Execute(objectID string, index int, args ...any) string {
	params := "0"
	if len(args) > 0 {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = FormatValue(a)
		}
		params = strings.Join(parts, ",")
	}
	return fmt.Sprintf("%s:execute(%d,%s)", objectID, index, params)
}

// Typed wraps expr so that the device answers with "<lua type>:<value>".
func Typed(expr string) string {
	return `(load("result = ` + luaEscaper.Replace(expr) +
		` return (type(result) .. \":\" .. tostring(result))")())`
}

// CollectGarbage returns the payload running a full Lua garbage collection.
func CollectGarbage() string {
	return `collectgarbage("collect")`
}

// ClientRegister returns the payload registering (or re-registering) a client
// page. The device answers with the current value of every listed feature and
// afterwards pushes changes to localIP:localPort.
func ClientRegister(localIP string, localPort, clientID int, features []FeatureRef) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range features {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "{%s,%d}", f.ObjectID, f.Index)
	}
	b.WriteByte('}')
	return fmt.Sprintf(`SYSTEM:clientRegister("%s",%d,%d,%s)`, localIP, localPort, clientID, b.String())
}

// ClientDestroy returns the payload removing a client page on the device.
func ClientDestroy(localIP string, localPort, clientID int) string {
	return fmt.Sprintf(`SYSTEM:clientDestroy("%s",%d,%d)`, localIP, localPort, clientID)
}
