// Package heartbeat implements the liveness exchange between netmuxd and a
// network-attached peer.
//
// The peer periodically sends a "Marco" property list and expects a "Polo"
// reply. A device that misses a ping within the receive timeout, or whose
// reply cannot be written, is considered gone.
//
// # Wire Format
//
// Every message is one frame:
//
//	+----------------+-------------------------------+
//	| length (4, BE) | property list (binary format) |
//	+----------------+-------------------------------+
//
// The property list is a dictionary with at least a "Command" key.
//
//	{"Command": "Marco", "Interval": 10}   peer -> netmuxd
//	{"Command": "Polo"}                    netmuxd -> peer
//	{"Command": "SleepyTime"}              peer is going to sleep
//
// # Usage
//
//	t := heartbeat.NewTCPTransport(heartbeat.Config{Port: 62078})
//	sess, err := t.Establish(ctx, serial, []string{"192.168.1.20"})
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	if _, err := sess.Receive(15 * time.Second); err != nil {
//	    return err
//	}
//	return sess.Send(heartbeat.Polo())
package heartbeat
