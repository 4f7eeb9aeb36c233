// Package simwire is a deterministic in-memory transport for gRPC-shaped
// services. Servers register the same grpc.ServiceDesc tables that real
// gRPC uses, and clients talk to them through grpc.ClientConnInterface,
// so code generated for this fabric and code generated for a real
// connection differ only in how they dial and serve.
//
// A Network is an address space. Listening claims an address, dialing
// binds lazily, and every call crosses the fabric as marshaled bytes so
// no memory is shared between client and server:
//
//	network := simwire.NewNetwork()
//	defer network.Close()
//
//	srv, err := network.Listen("greeter")
//	if err != nil {
//	    return err
//	}
//	helloworldv1.RegisterGreeterServer(srv, &greeterServer{})
//
//	cc, err := network.Dial("greeter")
//	if err != nil {
//	    return err
//	}
//	client := helloworldv1.NewGreeterClient(cc)
//
// Unary calls run the handler synchronously in the caller's goroutine.
// Streams run the handler in one goroutine and hand messages over by
// rendezvous. Nothing in the fabric consults the clock or randomness, so
// a deterministic caller gets an identical interleaving on every run.
package simwire
