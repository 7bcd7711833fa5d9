// Package metadata patches per-object print parameters inside the slicer
// metadata document (Metadata/Slic3r_PE_model.config) of a 3MF package.
//
// Each object entry carries free-form <metadata type="object" key=... value=.../>
// fields and one <volume> record whose lastid attribute is the zero-based
// index of the object's final triangle. Edits are textual and confined to the
// entry being patched.
package metadata
