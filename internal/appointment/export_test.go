package appointment

// RepairSlot lets tests drive a single repair with a chosen snapshot.
var RepairSlot = (*Service).repairSlot
