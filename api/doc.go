// Package api describes the CareerFlow HTTP and websocket surface.
//
// The wire types shared by clients live in this package; the request
// handlers live in api/handlers.
//
// # API Overview
//
//   - GET  /ws/chat?session_id=            websocket coaching session
//   - POST /api/v1/profile/cv?session_id=  upload a CV as text, multipart or JSON
//   - GET  /api/v1/sessions                persisted sessions, newest first
//   - GET  /api/v1/sessions/active         live session ids
//   - GET  /api/v1/sessions/{id}           session record and transcript
//   - GET  /api/v1/sessions/{id}/messages  transcript only
//   - DELETE /api/v1/sessions/{id}         delete a finished session
//   - GET  /api/v1/agents                  session roster
//   - GET  /health, /healthz, /ready, /version
//
// # Authentication
//
// When API keys are configured, REST endpoints require either the
// X-API-Key header or a bearer JWT:
//
//	X-API-Key: your-api-key
//	Authorization: Bearer <jwt>
//
// Browsers cannot set headers on websocket upgrades, so /ws/chat also
// accepts the key through the api_key query parameter.
//
// # Websocket Protocol
//
// The server streams Event frames; the client sends Inbound frames. Frames
// the server cannot parse are answered with a system event and otherwise
// ignored.
package api
