// Package mudcore implements a multipath encrypted UDP tunnel core: one
// AEAD-protected socket fanning outbound traffic over several physical
// paths to a single peer, picked each send by a latency-weighted round
// robin, with key material rotated in-band via Diffie-Hellman so a tunnel
// can run indefinitely on a single pre-shared key.
//
// # Getting Started
//
// Bind an engine, install a peer, and exchange datagrams:
//
//	cfg := mudcore.NewConfig()
//	cfg.Port = 5000
//
//	engine, err := mudcore.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	if err := engine.Peer("10.0.0.1", "10.0.0.2", 5000, false); err != nil {
//	    log.Fatal(err)
//	}
//
//	// The first Send on a fresh path goes out on it as a recovering path
//	// and still reports ErrNoPath.
//	if _, err := engine.Send([]byte("hello"), 0); err != nil && !errors.Is(err, mudcore.ErrNoPath) {
//	    log.Fatal(err)
//	}
//
//	buf := make([]byte, mudcore.DefaultMTU)
//	for {
//	    n, err := engine.Recv(buf)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if n > 0 {
//	        fmt.Printf("received: %s\n", buf[:n])
//	    }
//	}
//
// The host is responsible for driving Send and Recv from its own event
// loop; FD exposes the underlying socket descriptor for integrating with
// select/poll/epoll. Neither call blocks beyond the single syscall it
// issues.
//
// # Core Types
//
//   - [Engine]: the bound tunnel endpoint, one per peer
//   - [Config]: construction-time parameters for New
package mudcore
