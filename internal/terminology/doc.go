// Package terminology holds the parsed form of odML terminology documents and
// the parser that produces it. The registry treats the parser as a black box:
// bytes in, a finalized *Terminology or a *ParseError out.
package terminology
