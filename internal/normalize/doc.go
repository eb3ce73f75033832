// Package normalize reconciles the payload dialects sent by bin devices and
// the vision classifier into two canonical events: SensorEvent and
// ClassificationEvent.
//
// Embedded senders are unreliable, so every function here is total: missing,
// misspelled or malformed fields degrade to absent values and nothing returns
// an error.
//
// Sensor payload dialects, tried in order:
//   - DialectDualCompartment: nested objects under a compartment alias
//     (recycle/recyclable/blue/comp1, general/trash/black/comp2/non-recyclable)
//   - DialectLegacyFlat: flat ultrasonic/distance/dist and weight fields,
//     mapped onto the recycle compartment
//   - DialectEmpty: nothing recognized
package normalize
