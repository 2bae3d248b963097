// Package etp implements the session and message framing engine of the
// Energistics Transfer Protocol.
//
// A Server accepts connections from a Transport and gives each one a
// Session. A Session owns one handler per sub-protocol, allocates message
// ids, joins multi-part messages back together and routes every inbound
// message to the handler registered for its protocol. Handlers expose each
// inbound message type as a Hook whose listeners and reaction may fill in
// or cancel the default response.
package etp
