package mcpserver

// ValueContract describes how day values are recorded and classified, for LLM
// consumers that call set_day or read get_retention output.
const ValueContract = `# Loopgrid Value Contract

Every habit is either a yes/no habit (type 0) or a numeric habit (type 1).

## Days

- A day is a UTC calendar day written as ` + "`YYYY-MM-DD`" + `.
- One value is stored per habit and day. Setting a day replaces what was there.
- Clearing a day removes its value; the day then reads as ` + "`missed`" + `.

## Yes/no habits

- ` + "`set_day`" + ` with ` + "`done: true`" + ` marks the day done.
- ` + "`done: false`" + ` clears it.

## Numeric habits

- ` + "`set_day`" + ` takes ` + "`amount`" + ` in the habit's unit (e.g. 2.5 for 2.5 km).
- Amounts are stored in thousandths, so three decimals are kept.
- An amount of 0 clears the day. Negative amounts are rejected.

## Status

Retention output maps habit id -> day -> {status, rawValue}.

| Status  | Yes/no habit | Numeric habit with target T |
|---------|--------------|-----------------------------|
| done    | marked done  | amount >= T                 |
| partial | never        | 0 < amount < T              |
| missed  | anything else| nothing recorded            |

A numeric habit with no target counts any positive amount as done.
Days that are absent from the output are missed.
`
