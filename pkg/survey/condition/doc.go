// Package condition provides condition evaluation for survey navigation.
//
// A condition is either a structured (field, operator, value) rule, the
// form the visual rule builder emits today, or a string expression. String
// expressions are evaluated in two stages:
//
//  1. Pattern recognition: a fixed catalogue of shapes the rule builder
//     historically emitted as JavaScript snippets (date comparisons, "is
//     today", weekend checks, age-from-birthdate, regex .test(), array
//     .includes()/.some()/.every(), string method calls, and plain
//     field-vs-literal comparisons). Recognized shapes are evaluated
//     directly against the value context without any expression engine.
//
//  2. Fallback: anything unrecognized is normalized (JS-isms rewritten,
//     dangerous tokens rejected) and compiled with expr-lang/expr into a
//     boolean program over the value context. Programs are parsed to an
//     AST and interpreted; no dynamic code is ever constructed. Expressions
//     support:
//
//     - Variable access: age, address.country (dotted paths)
//     - Comparisons: ==, !=, <, >, <=, >=
//     - Boolean logic: &&, ||, !
//     - Membership: "value" in array (built-in operator)
//     - Custom functions: has(array, element), includes(array, element),
//       startsWith(s, prefix), endsWith(s, suffix), matches(s, pattern),
//       length(collection)
//
// Evaluation never fails: a parse error, a type error, or an unresolved
// field reference all make the condition false. Identical inputs always
// produce identical results; the evaluator caches compiled programs, never
// outcomes.
//
// Note: The expr library uses "contains" as a string operator (for
// substring matching), so use "in" or "has()" for array membership checks.
package condition
