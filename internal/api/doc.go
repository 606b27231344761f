// Package api serves the netmuxd status API over HTTP.
//
// Routes live under /api/v1:
//
//	GET  /health                     daemon and component health
//	GET  /devices                    registered devices
//	GET  /supervisors                per-target supervisor status
//	GET  /supervisors/{target}       one supervisor
//	POST /supervisors/{target}/wake  retry a target now
//	GET  /sessions?limit=N           recent attach/detach sessions
//	GET  /ws                         lifecycle event stream
//
// The WebSocket hub is a sink on the daemon's event bus. Clients receive
// every event kind unless they subscribe to specific kinds, either with a
// "kinds" query parameter or a subscribe message.
//
// The API is read-mostly and has no authentication; bind it to loopback
// unless the network is trusted.
package api
