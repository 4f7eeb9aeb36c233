package ir

import "strings"

const wellKnownPrefix = ".google.protobuf."

const knownTypesRoot = "google.golang.org/protobuf/types/known/"

// wellKnownTargets maps every google.protobuf type shipped under
// types/known to its absolute Go reference. Targets here satisfy the
// first resolution rule: they are used unprefixed whenever well-known
// types are not compiled from source.
var wellKnownTargets = map[string]string{
	".google.protobuf.Any": knownTypesRoot + "anypb.Any",

	".google.protobuf.Api":    knownTypesRoot + "apipb.Api",
	".google.protobuf.Method": knownTypesRoot + "apipb.Method",
	".google.protobuf.Mixin":  knownTypesRoot + "apipb.Mixin",

	".google.protobuf.Duration": knownTypesRoot + "durationpb.Duration",

	".google.protobuf.Empty": knownTypesRoot + "emptypb.Empty",

	".google.protobuf.FieldMask": knownTypesRoot + "fieldmaskpb.FieldMask",

	".google.protobuf.SourceContext": knownTypesRoot + "sourcecontextpb.SourceContext",

	".google.protobuf.ListValue": knownTypesRoot + "structpb.ListValue",
	".google.protobuf.Struct":    knownTypesRoot + "structpb.Struct",
	".google.protobuf.Value":     knownTypesRoot + "structpb.Value",

	".google.protobuf.Timestamp": knownTypesRoot + "timestamppb.Timestamp",

	".google.protobuf.Enum":      knownTypesRoot + "typepb.Enum",
	".google.protobuf.EnumValue": knownTypesRoot + "typepb.EnumValue",
	".google.protobuf.Field":     knownTypesRoot + "typepb.Field",
	".google.protobuf.Option":    knownTypesRoot + "typepb.Option",
	".google.protobuf.Type":      knownTypesRoot + "typepb.Type",

	".google.protobuf.BoolValue":   knownTypesRoot + "wrapperspb.BoolValue",
	".google.protobuf.BytesValue":  knownTypesRoot + "wrapperspb.BytesValue",
	".google.protobuf.DoubleValue": knownTypesRoot + "wrapperspb.DoubleValue",
	".google.protobuf.FloatValue":  knownTypesRoot + "wrapperspb.FloatValue",
	".google.protobuf.Int32Value":  knownTypesRoot + "wrapperspb.Int32Value",
	".google.protobuf.Int64Value":  knownTypesRoot + "wrapperspb.Int64Value",
	".google.protobuf.StringValue": knownTypesRoot + "wrapperspb.StringValue",
	".google.protobuf.UInt32Value": knownTypesRoot + "wrapperspb.UInt32Value",
	".google.protobuf.UInt64Value": knownTypesRoot + "wrapperspb.UInt64Value",
}

// IsWellKnown reports whether the IDL name (leading-dot form) is a
// google.protobuf well-known type.
func IsWellKnown(idlName string) bool {
	return strings.HasPrefix(idlName, wellKnownPrefix)
}

// WellKnownTarget returns the absolute Go reference for a well-known type.
func WellKnownTarget(idlName string) (string, bool) {
	t, ok := wellKnownTargets[idlName]
	return t, ok
}
