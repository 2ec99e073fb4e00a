// pixcache uses flags and a single config file for configuration.
// A config file is stored in .txtpb format and contains the values that can be set via flags, e.g.
//   cache { max_items: 200 default_ttl { seconds: 600 } }
//   server { admin_address: "127.0.0.1:6390" }

package config

import (
	"flag"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// skippedProtobufFlags is the list of command line flags on which the protobuf check is disabled.
var skippedProtobufFlags = []string{"print_version", "config_file"}

// durationFromMessage reads a google.protobuf.Duration held in a dynamic message.
func durationFromMessage(m protoreflect.Message) time.Duration {
	fields := m.Descriptor().Fields()
	seconds := m.Get(fields.ByName("seconds")).Int()
	nanos := m.Get(fields.ByName("nanos")).Int()
	return time.Duration(seconds)*time.Second + time.Duration(nanos)
}

// protobufValueToString converts a protobuf field value to its string representation suitable for flag setting.
func protobufValueToString(fd protoreflect.FieldDescriptor, v protoreflect.Value) (string, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return strconv.FormatBool(v.Bool()), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return strconv.FormatInt(v.Int(), 10), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return strconv.FormatUint(v.Uint(), 10), nil
	case protoreflect.DoubleKind:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	case protoreflect.StringKind:
		return v.String(), nil
	case protoreflect.MessageKind:
		if fullName := fd.Message().FullName(); fullName != "google.protobuf.Duration" {
			return "", fmt.Errorf("unsupported message leaf: %s", fullName)
		}
		return durationFromMessage(v.Message()).String(), nil
	default:
		return "", fmt.Errorf("unsupported kind: %v", fd.Kind())
	}
}

// collectFlags collects the flag values set in the given config message into `flags`.
func collectFlags(flags map[ /*flagName*/ string] /*flagValue*/ string, m protoreflect.Message) error {
	var err error
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if fd.IsList() || fd.IsMap() {
			err = fmt.Errorf("repeated/map not supported: %s", fd.FullName())
			return false
		}
		flagName, isLeaf := flagNames[fd.FullName()]
		// Recurse into sections.
		if !isLeaf {
			if fd.Kind() != protoreflect.MessageKind {
				err = fmt.Errorf("field %s is not bound to a flag", fd.FullName())
				return false
			}
			err = collectFlags(flags, v.Message())
			return err == nil
		}
		stringValue, convErr := protobufValueToString(fd, v)
		if convErr != nil {
			err = fmt.Errorf("failed to convert %s: %w", fd.FullName(), convErr)
			return false
		}
		if _, alreadyExists := flags[flagName]; alreadyExists {
			err = fmt.Errorf("flag '%s' has multiple entries in txtpb config: '%s'", flagName, fd.FullName())
			return false
		}
		flags[flagName] = stringValue
		return true
	})
	return err
}

// parseConfig decodes a .txtpb config into flag values.
func parseConfig(configBytes []byte) (map[ /*flagName*/ string] /*flagValue*/ string, error) {
	conf := dynamicpb.NewMessage(schema)
	if err := prototext.Unmarshal(configBytes, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	flags := make(map[string]string)
	if err := collectFlags(flags, conf); err != nil {
		return nil, fmt.Errorf("failed to collect flags: %w", err)
	}
	return flags, nil
}

// setConfigFlags sets all the filled flags in the given config to the global flag variables.
func setConfigFlags(configBytes []byte) error {
	flags, err := parseConfig(configBytes)
	if err != nil {
		return err
	}
	for flagName, flagValue := range flags {
		if setErr := flag.Set(flagName, flagValue); setErr != nil {
			return fmt.Errorf("failed to set flag %s: %w", flagName, setErr)
		}
	}
	return nil
}

// definedFlags returns the set of flags the config schema can set.
func definedFlags() map[ /*flagName*/ string]struct{} {
	flagSet := make(map[string]struct{}, len(flagNames))
	for _, flagName := range flagNames {
		flagSet[flagName] = struct{}{}
	}
	return flagSet
}

// CollectUnregisteredFlags collects all flags that haven't been registered in the protobuf config.
// An error exists in the results corresponding to each unregistered flag.
func CollectUnregisteredFlags() []error {
	defined := definedFlags()
	errs := make([]error, 0)
	flag.VisitAll(func(f *flag.Flag) {
		if strings.HasPrefix(f.Name, "test.") { // Skip test flags.
			return
		}
		if slices.Contains(skippedProtobufFlags, f.Name) {
			return
		}
		if _, flagHasConfigEntry := defined[f.Name]; !flagHasConfigEntry {
			errs = append(errs, fmt.Errorf("flag '%s' has not been defined in protobuf config", f.Name))
		}
	})
	return errs
}
