// Package offer turns broker slots into resource requirements and matches
// those requirements against agent offers, first fit.
package offer
