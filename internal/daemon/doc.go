// Package daemon wires deckd together: the engine, the deck, the socket
// server, and the optional history, notification, chime and HTTP layers,
// plus configuration hot-reload.
package daemon
