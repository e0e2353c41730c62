package core

// Version is the core package's release identifier, bumped alongside
// protocol-visible behavior changes (FX.25 tag table, HDLC dedup
// policy).
const Version = "0.1.0"
