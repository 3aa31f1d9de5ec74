package rpc

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const fileName = "kvshard/v1/router.proto"

// File describes the kvshard.v1.Router service. It is registered in
// protoregistry.GlobalFiles so gRPC reflection can serve it.
var File protoreflect.FileDescriptor

func init() {
	fd, err := protodesc.NewFile(fileProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic("rpc: building " + fileName + ": " + err.Error())
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic("rpc: registering " + fileName + ": " + err.Error())
	}
	File = fd
}

func fileProto() *descriptorpb.FileDescriptorProto {
	structName := "." + string((&structpb.Struct{}).ProtoReflect().Descriptor().FullName())
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(fileName),
		Package:    proto.String("kvshard.v1"),
		Dependency: []string{structpb.File_google_protobuf_struct_proto.Path()},
		Syntax:     proto.String("proto3"),
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Router"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:       proto.String("Do"),
				InputType:  proto.String(structName),
				OutputType: proto.String(structName),
			}},
		}},
	}
}
