// Package link keeps the chat-id <-> game-id link table.
//
// The table maps a chat identity (a Telegram user id rendered as a decimal
// string) to one game identity, or to a Java+Bedrock pair. It is loaded once
// from a JSON file, mutated in memory and written back wholesale by Save.
//
// File format (UTF-8 JSON object):
//
//	{
//	  "123456789": "0f1e2d3c-...",                  // single identity
//	  "987654321": ["<java uuid>", "<bedrock uuid>"] // pair, Java first
//	}
//
// Loading tolerates a bare JSON primitive (treated as empty), drops arrays
// shorter than two elements and accepts the legacy inverted form where the key
// is the game id and the value the chat id.
package link
