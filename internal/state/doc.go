package state

// Package state persists the set of rental-record identities that have
// already been notified (or silently seeded on first run).
//
// It currently supports:
//   - A JSON file backend (human-inspectable array of identity strings)
//   - An optional SQLite backend
