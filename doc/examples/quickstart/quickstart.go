// Package quickstart provides simple example code for documentation.
package quickstart

import (
	"log"

	"github.com/simwire/simwire"
	"github.com/simwire/simwire/middleware"
	"github.com/simwire/simwire/simwiregen"
)

func exampleGeneration() {
	// [snippet:generation]
	err := simwiregen.Configure().
		OutDir("gen").
		FileDescriptorSet("descriptors.binpb").
		Compile(
			[]string{"helloworld/v1/greeter.proto"},
			[]string{"proto"},
		)
	if err != nil {
		log.Fatal(err)
	}
	// [/snippet:generation]
}

func exampleFabric() {
	// [snippet:fabric]
	network := simwire.NewNetwork()
	defer network.Close()

	server, err := network.Listen("greeter",
		simwire.WithUnaryInterceptor(middleware.UnaryLogging(nil)),
	)
	if err != nil {
		log.Fatal(err)
	}
	// Register generated services on the server, then dial it:
	//
	//	helloworldv1.RegisterGreeterServer(server, &greeterImpl{})
	conn, err := network.Dial("greeter")
	if err != nil {
		log.Fatal(err)
	}
	// client := helloworldv1.NewGreeterClient(conn)
	// [/snippet:fabric]
	_, _ = server, conn
}

// Keep examples compiled.
var (
	_ = exampleGeneration
	_ = exampleFabric
)
