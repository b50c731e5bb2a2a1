// Package section implements versioned storage for document sections.
//
// A LaTeX document is split into top-level \section blocks; nested
// subsections stay attached to their enclosing section. Everything before
// the first section marker becomes the preamble pseudo-section, and the
// bibliography/closing block becomes the postamble. The document order of
// sections is persisted as metadata because it cannot be recovered from
// slugs alone.
//
// Snapshots are laid out on disk as:
//
//	<root>/sections/
//	├── section_order.json
//	├── _special/
//	│   ├── _preamble.tex
//	│   └── _postamble.tex
//	└── <section_id>/
//	    ├── original.tex
//	    ├── original_metadata.json
//	    └── iter<N>/
//	        ├── pass<M>_working.tex
//	        └── pass<M>_final.tex
//
// Originals and final snapshots are write-once; the working snapshot is the
// one in-progress version for a (iteration, pass) and may be rewritten as
// repair rounds accumulate fixes.
//
// Lookups never fail on absence. Version reads walk an ordered candidate
// list (same iteration's earlier passes, then earlier iterations' finals,
// then the original) and return the first snapshot that exists; a missing
// key means "nothing changed yet", not an error.
package section
