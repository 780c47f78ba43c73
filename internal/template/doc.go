// Package template implements the small templating language used for
// file path and content patterns: `{{dotted.path}}` substitution,
// `{% if %}` conditionals and `{% for %}` loops over a dynamically-typed
// variable bag.
//
// Rendering is forgiving: unknown variables are left as the literal
// placeholder rather than failing, so rendering with a partial bag
// degrades visibly instead of silently. Only unterminated markers
// are render-time errors; unclosed blocks are reported by Validate.
package template
