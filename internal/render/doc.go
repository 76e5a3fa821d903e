// Package render implements the report template language.
//
// A template body mixes literal text with three constructs:
//
//	{{ name }}                                 placeholder
//	{% if cond %} ... {% else %} ... {% endif %} conditional, else optional
//	{% for item in items %} ... {% endfor %}      loop over a sequence
//
// A condition is a single operand tested for truthiness or a comparison
// "left OP right" with OP one of == === != !== > < >= <=. Operands that name a
// binding use its value; anything else is a literal. Both sides compare as
// numbers when both parse as numbers, otherwise as strings.
//
// Each render level resolves its conditionals first, then expands its loops,
// rendering every loop body recursively with the loop variable bound, and
// finally substitutes placeholders. Loops may nest at most MaxDepth levels.
// Any failure aborts the whole render; no partial output is returned.
//
// Rendering is a pure function of the body and the bindings, so a Template
// can be shared between goroutines.
package render
