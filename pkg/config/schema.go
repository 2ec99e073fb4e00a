// The config file schema is declared here instead of in a .proto file: every leaf field names the command line flag
// it sets, and the descriptor is built from the same table at init time.

package config

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/durationpb"
)

const (
	schemaPackage = "pixcache.config"
	durationType  = ".google.protobuf.Duration"
)

// configField is a leaf of the config file bound to the flag `flag`.
type configField struct {
	name     string
	kind     descriptorpb.FieldDescriptorProto_Type
	typeName string // Message type for TYPE_MESSAGE fields.
	flag     string
}

// configSection is a nested message of the top level Config message.
type configSection struct {
	field   string // Field name inside Config.
	message string // Message name.
	fields  []configField
}

func durationField(name, flag string) configField {
	return configField{name: name, kind: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, typeName: durationType, flag: flag}
}

var configSections = []configSection{
	{field: "log", message: "LogConfig", fields: []configField{
		{name: "handler_type", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flag: "log_handler_type"},
		{name: "level", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flag: "log_level"},
	}},
	{field: "cache", message: "CacheConfig", fields: []configField{
		{name: "max_items", kind: descriptorpb.FieldDescriptorProto_TYPE_INT32, flag: "cache_max_items"},
		{name: "max_memory_bytes", kind: descriptorpb.FieldDescriptorProto_TYPE_INT64, flag: "cache_max_memory_bytes"},
		durationField("default_ttl", "cache_default_ttl"),
		durationField("stats_interval", "cache_stats_interval"),
		{name: "stats_buckets", kind: descriptorpb.FieldDescriptorProto_TYPE_INT32, flag: "cache_stats_buckets"},
		{name: "hit_weight", kind: descriptorpb.FieldDescriptorProto_TYPE_DOUBLE, flag: "cache_hit_weight"},
		durationField("sweep_interval", "cache_sweep_interval"),
	}},
	{field: "server", message: "ServerConfig", fields: []configField{
		{name: "metrics_address", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flag: "metrics_address"},
		{name: "admin_address", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flag: "admin_address"},
	}},
	{field: "mirror", message: "MirrorConfig", fields: []configField{
		{name: "command", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flag: "mirror_command"},
		durationField("timeout", "mirror_timeout"),
		{name: "queue_size", kind: descriptorpb.FieldDescriptorProto_TYPE_INT32, flag: "mirror_queue_size"},
	}},
}

// schema is the Config message descriptor and flagNames maps its leaves to flag names.
var (
	schema    protoreflect.MessageDescriptor
	flagNames map[protoreflect.FullName] /*flagName*/ string
)

func init() {
	var err error
	if schema, flagNames, err = buildSchema(configSections); err != nil {
		panic(fmt.Sprintf("invalid config schema: %v", err))
	}
}

// buildSchema compiles `sections` into a Config message descriptor.
func buildSchema(sections []configSection) (protoreflect.MessageDescriptor, map[protoreflect.FullName]string, error) {
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	file := &descriptorpb.FileDescriptorProto{
		Name:       proto.String("pixcache/config.proto"),
		Package:    proto.String(schemaPackage),
		Syntax:     proto.String("proto2"),
		Dependency: []string{durationpb.File_google_protobuf_duration_proto.Path()},
	}
	root := &descriptorpb.DescriptorProto{Name: proto.String("Config")}
	names := make(map[protoreflect.FullName]string)
	for sectionIdx, section := range sections {
		message := &descriptorpb.DescriptorProto{Name: proto.String(section.message)}
		for fieldIdx, field := range section.fields {
			fieldProto := &descriptorpb.FieldDescriptorProto{
				Name:   proto.String(field.name),
				Number: proto.Int32(int32(fieldIdx + 1)),
				Label:  optional,
				Type:   field.kind.Enum(),
			}
			if field.typeName != "" {
				fieldProto.TypeName = proto.String(field.typeName)
			}
			message.Field = append(message.Field, fieldProto)
			names[protoreflect.FullName(schemaPackage+"."+section.message+"."+field.name)] = field.flag
		}
		file.MessageType = append(file.MessageType, message)
		root.Field = append(root.Field, &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(section.field),
			Number:   proto.Int32(int32(sectionIdx + 1)),
			Label:    optional,
			Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
			TypeName: proto.String("." + schemaPackage + "." + section.message),
		})
	}
	file.MessageType = append(file.MessageType, root)

	fd, err := protodesc.NewFile(file, protoregistry.GlobalFiles)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build config descriptor: %w", err)
	}
	return fd.Messages().ByName("Config"), names, nil
}
