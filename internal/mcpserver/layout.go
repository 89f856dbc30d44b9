package mcpserver

const layoutURI = "decksmith://output-layout"

// OutputLayout describes the on-disk tree written for every extracted deck.
const OutputLayout = `# decksmith Output Layout

Every extracted archive lives under ` + "`" + `<base>/<hash>/` + "`" + `, where ` + "`" + `<hash>` + "`" + `
is the lowercase hex SHA-256 of the archive bytes. Extracting the same bytes again
replaces the tree with an identical one.

## Tree

` + "```" + `text
<hash>/
  collection.sqlite   normalized, decompressed collection store (read-only use)
  raw/                every archive member, byte for byte
    media             media index: {"<id>": "<filename>", ...}
    0, 1, ...         media payloads named by id
  media/              media files under their logical filenames
` + "```" + `

## Rules

1. **Addressing.** Tools take the ` + "`" + `hash` + "`" + ` returned by ` + "`" + `extract_deck` + "`" + ` or
   ` + "`" + `fetch_deck` + "`" + `, never a filesystem path.
2. **Media modes.** ` + "`" + `referenced` + "`" + ` (default) writes only files named by
   ` + "`" + `<img src=...>` + "`" + ` or ` + "`" + `[sound:...]` + "`" + ` in some note field;
   ` + "`" + `full` + "`" + ` writes every indexed file.
3. **Fields** are returned in notetype field order. Field names come from the notetype;
   notes whose notetype is missing have an empty name and no field names.
4. **Templates.** ` + "`" + `resolve_note` + "`" + ` uses the note's first card (lowest ordinal).
   When the notetype has no template with that ordinal, template 0 is used.
5. **Stylesheets** are returned as plain CSS; any trailing LaTeX preamble is removed.
`
