// Package detector defines the detector description tree that geometry
// sources evaluate into: volumes containing placements of other volumes
// and of sensitive elements.
//
// A Graph is produced once per evaluation and treated as immutable by
// every consumer.
package detector
