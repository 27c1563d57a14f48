package firmware

import "fmt"

// Error and alarm code tables for the GRBL family, including the grblHAL
// extensions. Controllers send bare numeric codes; the descriptive text
// never appears on the wire.

var grblErrors = map[int]string{
	1:  "G-code words consist of a letter and a value. Letter was not found.",
	2:  "Numeric value format is not valid or missing an expected value.",
	3:  "Grbl '$' system command was not recognized or supported.",
	4:  "Negative value received for an expected positive value.",
	5:  "Homing cycle is not enabled via settings.",
	6:  "Minimum step pulse time must be greater than 3µs.",
	7:  "EEPROM read failed. Reset and restored to default values.",
	8:  "Grbl '$' command cannot be used unless Grbl is IDLE. Ensures smooth operation during a job.",
	9:  "G-code locked out during alarm or jog state.",
	10: "Soft limits cannot be enabled without homing also enabled.",
	11: "Max characters per line exceeded. Line was not processed and executed.",
	12: "Grbl '$' setting value exceeds the maximum step rate supported.",
	13: "Safety door detected as opened and door state initiated.",
	14: "Build info or startup line exceeded EEPROM line length limit.",
	15: "Jog target exceeds machine travel. Command ignored.",
	16: "Jog command with no '=' or contains prohibited g-code.",
	17: "Laser mode requires PWM output.",
	20: "Unsupported or invalid g-code command found in block.",
	21: "More than one g-code command from same modal group found in block.",
	22: "Feed rate has not yet been set or is undefined.",
	23: "G-code command in block requires an integer value.",
	24: "Two G-code commands that both require the use of the XYZ axis words were detected in the block.",
	25: "A G-code word was repeated in the block.",
	26: "A G-code command implicitly or explicitly requires XYZ axis words in the block, but none were detected.",
	27: "N line number value is not within the valid range of 1 - 9,999,999.",
	28: "A G-code command was sent, but is missing some required P or L value words in the line.",
	29: "Grbl supports six work coordinate systems G54-G59. G59.1, G59.2, and G59.3 are not supported.",
	30: "The G53 G-code command requires either a G0 seek or G1 feed motion mode to be active.",
	31: "There are unused axis words in the block and G80 motion mode cancel is active.",
	32: "A G2 or G3 arc was commanded but there are no XYZ axis words in the selected plane to trace the arc.",
	33: "The motion command has an invalid target. G2, G3, and G38.2 generates this error if the arc is impossible to generate or if the probe target is the current position.",
	34: "A G2 or G3 arc, traced with the radius definition, had a mathematical error when computing the arc geometry.",
	35: "A G2 or G3 arc, traced with the offset definition, is missing the IJK offset word in the selected plane to trace the arc.",
	36: "There are unused, leftover G-code words that aren't used by any command in the block.",
	37: "The G43.1 dynamic tool length offset command cannot apply an offset to an axis other than its configured axis.",
	38: "Tool number greater than max supported value.",

	// grblHAL extensions
	39: "Canned cycle is not active. G-code requires an active canned cycle (G81-G89) context.",
	40: "Value word (N, P, R) is missing or undefined.",
	41: "Value word conflict. L word cannot be used with canned cycle P word.",
	42: "Invalid canned cycle retract mode. R-plane must be above Z-datum for G98 or current position for G99.",
	43: "G-code requires RPM to be set (S-word) when spindle is enabled.",
	44: "PID log is full. Cannot add more data to the PID tuning log.",
	45: "Max step rate exceeded. Motion rate would exceed maximum step rate for any axis.",
	46: "Safety door already opened. Attempting to open an already open safety door.",
	47: "Illegal operation. Cannot jog or use G28/G30 from within a program.",
	48: "Unsupported P-parameter. P-value not within valid range for specific command.",
	49: "Value out of range. Numerical value is outside acceptable range for command.",
	50: "Setting step pulse min > step pulse time. Minimum step pulse time must be less than or equal to pulse time.",
	51: "Limits check failed. Sensor not detected at expected position during homing.",
	52: "Limit switch pull-off failed. Unable to clear limit switch when pulling off.",
	53: "Invalid file number. File number specified does not exist or is invalid.",
	54: "File is read-only. Cannot write to or delete a read-only file.",
	55: "File is empty. Cannot execute empty file or no valid G-code found.",
	56: "File not found. Specified file does not exist on storage device.",
	57: "File read failed. Error reading from storage device.",
	58: "Spindle at speed timeout. Spindle failed to reach commanded speed within timeout period.",
	59: "Spindle not running. Command requires spindle to be running (e.g., M3 or M4).",
	60: "Value out of range or invalid. Parameter value outside valid range or inappropriate for context.",
	61: "Configuration failed. Error loading or applying configuration settings.",
	62: "Illegal home state. Attempting to home when already in a homed state or unsafe condition.",
	63: "Max travel exceeded. Motion would exceed maximum travel distance for axis.",
	64: "Max feed rate exceeded. Commanded feed rate exceeds maximum configured feed rate.",
	65: "Disabled. Feature or function is disabled in configuration.",
	66: "Password required. Command requires authentication but no password provided.",
	67: "Invalid password. Provided password is incorrect.",
	68: "Bluetooth initialization failed. Error initializing Bluetooth hardware or stack.",
	69: "Homing is required. Command cannot execute until machine is homed.",
	70: "Invalid plane selected. G17/G18/G19 plane selection conflict or invalid for command.",
	71: "Tool change required. M6 tool change command required before continuing.",
	72: "Not allowed. Command not permitted in current state or mode.",
	73: "Self-test failed. Controller hardware self-test reported failure.",
	74: "Busy. Controller busy processing previous command.",
	75: "Command requires single axis. Multi-axis movement not allowed for this command.",
}

var grblAlarms = map[int]string{
	1: "Hard limit triggered. Machine position is likely lost due to sudden and immediate halt. Re-homing is highly recommended.",
	2: "Soft limit: G-code motion target exceeds machine travel. Machine position safely retained. Alarm may be unlocked.",
	3: "Reset while in motion. Grbl cannot guarantee position. Lost steps are likely. Re-homing is highly recommended.",
	4: "Probe fail. The probe is not in the expected initial state before starting probe cycle, where G38.2 and G38.3 is not triggered and G38.4 and G38.5 is triggered.",
	5: "Probe fail. Probe did not contact the workpiece within the programmed travel for G38.2 and G38.4.",
	6: "Homing fail. Reset during active homing cycle.",
	7: "Homing fail. Safety door was opened during active homing cycle.",
	8: "Homing fail. Cycle failed to clear limit switch when pulling off. Try increasing pull-off setting or check wiring.",
	9: "Homing fail. Could not find limit switch within search distance. Defined as 1.5 * max_travel on search and 5 * pulloff on locate phases.",

	// grblHAL extensions
	10: "Limit switch engaged. Cannot complete homing cycle because limit switch is already triggered.",
	11: "Homing required. Machine must be homed before performing this operation.",
	12: "E-stop asserted. Emergency stop has been triggered.",
	13: "Motor fault. Stepper driver reported a fault condition.",
	14: "Homing configuration error. Invalid homing settings or configuration.",
	15: "Self-test failed. Controller hardware self-test reported failure during startup.",
	16: "Spindle at speed timeout. Spindle failed to reach commanded speed.",
	17: "Probe protection triggered. Probe circuit detected unsafe condition.",
	18: "Spindle sync error. Spindle synchronization lost during threading or rigid tapping.",
	19: "Power supply fault. Input power issue detected.",
	20: "Controller error. Internal controller error or malfunction.",
}

// DecodeError returns the description for a GRBL error code.
func DecodeError(code int) string {
	if msg, ok := grblErrors[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error code: %d", code)
}

// DecodeAlarm returns the description for a GRBL alarm code.
func DecodeAlarm(code int) string {
	if msg, ok := grblAlarms[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown alarm code: %d", code)
}

// FormatError renders an error code with its description.
func FormatError(code int) string {
	return fmt.Sprintf("error:%d - %s", code, DecodeError(code))
}

// FormatAlarm renders an alarm code with its description.
func FormatAlarm(code int) string {
	return fmt.Sprintf("ALARM:%d - %s", code, DecodeAlarm(code))
}
