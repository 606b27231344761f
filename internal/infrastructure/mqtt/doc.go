// Package mqtt provides MQTT client connectivity for netmuxd.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing device state and supervisor status (retained)
//   - Wake-command subscriptions restored across reconnects
//   - Last Will and Testament (LWT) for offline detection
//
// MQTT is optional. When mqtt.enabled is false the daemon runs without it
// and no component depends on the broker for supervision.
//
// # Topics
//
//	netmuxd/system/status
//	netmuxd/device/{serial}/state
//	netmuxd/supervisor/{target}/status
//	netmuxd/command/supervisor/{target}/wake
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSupervisorWakes(), 1,
//	    func(topic string, _ []byte) error {
//	        target, ok := mqtt.ParseSupervisorWake(topic)
//	        ...
//	    })
package mqtt
