// Package api holds the request and response types of the SkillBridge HTTP API.
//
// # API Overview
//
// SkillBridge exposes a small RESTful API for channels that front a virtual
// assistant:
//   - POST /api/v1/activities submits one user turn and returns every activity
//     the host produced for it
//   - GET and PATCH /api/v1/conversations/{id}/context read and merge the
//     conversation's SkillContext
//   - GET /api/v1/conversations/{id}/invocation shows the active skill invocation
//   - GET /api/v1/skills lists registered skill manifests
//   - health, readiness and version endpoints
//
// # Authentication
//
// When API keys are configured, API endpoints require the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:3978
package api
