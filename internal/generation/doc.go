// Package generation implements the task handlers for every generation type.
//
// Handlers are thin proxies: they call the local generation back-ends over
// HTTP (and optionally Gemini for story scripts), report milestone progress,
// and return a result map the API serves verbatim.
package generation
