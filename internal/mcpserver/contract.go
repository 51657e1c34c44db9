package mcpserver

// QuerySyntax describes the search query language for LLM consumers.
const QuerySyntax = `# arbor Query Syntax

A query is a sequence of expressions. Adjacent expressions are combined with
AND. Text matching ignores case and diacritics.

## Free text

- ` + "`" + `report` + "`" + ` matches note ids, titles, attribute names and label values.
  Full searches also match note content and tolerate small typos in titles.
- ` + "`" + `"quarterly report"` + "`" + ` matches the phrase as one token.

## Attributes

Attributes are resolved with inheritance: a note sees its own attributes,
those of its templates, and the inheritable attributes of its ancestors.

- ` + "`" + `#todo` + "`" + ` notes with label todo.
- ` + "`" + `#!todo` + "`" + ` notes without label todo.
- ` + "`" + `~author` + "`" + ` notes with relation author.
- ` + "`" + `#status=done` + "`" + ` label comparison; also for relations (` + "`" + `~author=abc123` + "`" + `).

## Note properties

` + "`" + `note.title` + "`" + `, ` + "`" + `note.type` + "`" + `, ` + "`" + `note.mime` + "`" + `, ` + "`" + `note.noteId` + "`" + `,
` + "`" + `note.isProtected` + "`" + `, ` + "`" + `note.childrenCount` + "`" + `, ` + "`" + `note.parentCount` + "`" + `,
` + "`" + `note.labelCount` + "`" + `. Properties always need an operator.

## Operators

| Operator | Meaning |
|---|---|
| ` + "`" + `=` + "`" + ` / ` + "`" + `!=` + "`" + ` | equal / not equal |
| ` + "`" + `*=*` + "`" + ` | contains |
| ` + "`" + `=*` + "`" + ` | starts with; without a value: attribute exists |
| ` + "`" + `*=` + "`" + ` | ends with |
| ` + "`" + `%=` + "`" + ` | regular expression |
| ` + "`" + `>` + "`" + ` ` + "`" + `>=` + "`" + ` ` + "`" + `<` + "`" + ` ` + "`" + `<=` + "`" + ` | numeric when both sides are numbers, text otherwise |
| ` + "`" + `~=` + "`" + ` / ` + "`" + `~*` + "`" + ` | fuzzy equals / fuzzy contains, at least 3 characters |

## Boolean logic

` + "`" + `and` + "`" + `, ` + "`" + `or` + "`" + `, ` + "`" + `not(...)` + "`" + ` and parentheses, e.g.
` + "`" + `#project=arbor and (#status=open or #status=review)` + "`" + `.

## Errors

Unknown operators, missing values, unknown note properties, invalid regular
expressions and fuzzy operands shorter than 3 characters are rejected with
the offending token. Other malformed input is searched as plain text.
`
