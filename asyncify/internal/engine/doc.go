// Package engine orchestrates async lowering.
//
// Transformation pipeline:
//  1. Validate the function against security limits (no mutation yet)
//  2. Discover locals and suspension points
//  3. Plan the packed state record
//  4. Build the <name>_poll state machine
//  5. Replace the original body with the state-allocating wrapper
package engine
